//go:build mage

package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

const (
	shaderSrcDir = "assets/shaders"
	shaderOutDir = "assets/shaders/spv"
)

var shaderSources = []string{"triangle.vert", "triangle.frag"}

type Build mg.Namespace

// Compiles the GLSL shaders to SPIR-V with glslc.
func (Build) Shaders() error {
	if err := os.MkdirAll(shaderOutDir, 0o755); err != nil {
		return err
	}
	for _, src := range shaderSources {
		in := filepath.Join(shaderSrcDir, src)
		out := filepath.Join(shaderOutDir, src+".spv")
		if _, err := executeCmd("glslc", withArgs(in, "-o", out), withStream()); err != nil {
			return err
		}
	}
	return nil
}

// Builds the binary.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "bin/triangle", "."), withStream())
	return err
}
