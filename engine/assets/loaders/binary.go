package loaders

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

// SPIR-V modules start with this word in the host byte order of the compiler.
const spirvMagic uint32 = 0x07230203

type ResourceType int

const (
	ResourceTypeNone ResourceType = iota
	ResourceTypeShader
)

type Resource struct {
	Name     string
	FullPath string
	DataSize uint64
	// SPIR-V words.
	Data []uint32
}

type BinaryLoader struct{}

func (bl *BinaryLoader) Load(path string, name string) (*Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}

	res, err := BytesToBytecode(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}

	return &Resource{
		Name:     name,
		FullPath: path,
		DataSize: uint64(len(buf)),
		Data:     res,
	}, nil
}

func (bl *BinaryLoader) Unload(*Resource) error {
	return nil
}

// BytesToBytecode decodes a little endian SPIR-V binary into words.
func BytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Newf("SPIR-V size %d is not a positive multiple of 4", len(b))
	}
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}
	if byteCode[0] != spirvMagic {
		return nil, errors.Newf("bad SPIR-V magic number 0x%08x", byteCode[0])
	}
	return byteCode, nil
}
