package assets

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/triangle/engine/assets/loaders"
	"github.com/spaghettifunk/triangle/engine/core"
)

type AssetInfo struct {
	Path       string
	Type       loaders.ResourceType
	LastLoaded time.Time
}

// AssetManager indexes the shader binaries under one directory and, when watching, posts
// EVENT_CODE_SHADERS_CHANGED whenever one of them is written.
type AssetManager struct {
	dir     string
	assets  map[string]AssetInfo
	loaders map[loaders.ResourceType]Loader

	mutex sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewAssetManager() (*AssetManager, error) {
	return &AssetManager{
		assets:  make(map[string]AssetInfo),
		loaders: make(map[loaders.ResourceType]Loader),
		done:    make(chan struct{}),
	}, nil
}

// Initialize indexes dir. With watch set, changes to it are reported until Shutdown.
func (am *AssetManager) Initialize(dir string, watch bool) error {
	am.dir = dir
	am.registerLoader(loaders.ResourceTypeShader, &loaders.BinaryLoader{})

	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "read asset directory %s", dir)
	}
	for _, e := range entries {
		if !e.IsDir() {
			am.handleFileEvent(filepath.Join(dir, e.Name()))
		}
	}

	if !watch {
		return nil
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create file watcher")
	}
	if err := fsWatch.Add(dir); err != nil {
		fsWatch.Close()
		return errors.Wrapf(err, "watch %s", dir)
	}
	am.fsnotify = fsWatch
	am.wg.Add(1)
	go am.start()
	core.LogInfo("Watching %s for shader changes.", dir)
	return nil
}

func (am *AssetManager) registerLoader(assetType loaders.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

// LoadShader loads <name>.spv from the asset directory.
func (am *AssetManager) LoadShader(name string) (*loaders.Resource, error) {
	path := filepath.Join(am.dir, name+".spv")

	am.mutex.Lock()
	asset, exists := am.assets[path]
	if exists {
		asset.LastLoaded = time.Now()
		am.assets[path] = asset
	}
	am.mutex.Unlock()
	if !exists {
		err := errors.Newf("asset not found: %s", path)
		core.LogError(err.Error())
		return nil, err
	}

	loader, loaderExists := am.loaders[asset.Type]
	if !loaderExists {
		return nil, errors.Newf("no loader registered for asset type: %d", asset.Type)
	}
	return loader.Load(path, name)
}

func (am *AssetManager) UnloadAsset(res *loaders.Resource) error {
	loader, ok := am.loaders[loaders.ResourceTypeShader]
	if !ok {
		return nil
	}
	return loader.Unload(res)
}

// Assets returns the indexed paths.
func (am *AssetManager) Assets() []string {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	paths := make([]string, 0, len(am.assets))
	for p := range am.assets {
		paths = append(paths, p)
	}
	return paths
}

func (am *AssetManager) Shutdown() error {
	if am.isClosed {
		return nil
	}
	am.isClosed = true
	if am.fsnotify == nil {
		return nil
	}
	close(am.done)
	am.wg.Wait()
	return am.fsnotify.Close()
}

func (am *AssetManager) start() {
	defer am.wg.Done()
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if am.handleFileEvent(e.Name) {
					context := core.EventContext{}
					context.Data.C[0] = e.Name
					if err := core.EventPost(core.EVENT_CODE_SHADERS_CHANGED, am, context); err != nil {
						core.LogWarn("dropped shader change for %s: %s", e.Name, err)
					}
				}
			}
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				am.removeAsset(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-am.done:
			return
		}
	}
}

// handleFileEvent indexes path and reports whether it is an asset.
func (am *AssetManager) handleFileEvent(path string) bool {
	assetType := determineAssetType(path)
	if assetType == loaders.ResourceTypeNone {
		return false
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[path] = AssetInfo{
		Path:       path,
		Type:       assetType,
		LastLoaded: time.Now(),
	}
	return true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, path)
}

func determineAssetType(path string) loaders.ResourceType {
	switch filepath.Ext(path) {
	case ".spv":
		return loaders.ResourceTypeShader
	default:
		return loaders.ResourceTypeNone
	}
}
