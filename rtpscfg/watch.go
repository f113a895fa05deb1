package rtpscfg

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/rtpscore/rtpscore/rlog"
)

// WatchProfiles watches v's underlying config file for changes and
// invokes onReload with the freshly reloaded DomainConfig on every
// change, debounced so a single save (which most editors turn into
// several fsnotify events) only triggers one reload. It runs until ctx
// is done.
func WatchProfiles(ctx context.Context, v *viper.Viper, onReload ProfileReloadFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	path := v.ConfigFileUsed()
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	log := rlog.New("rtpscfg.watch")
	go func() {
		defer watcher.Close()
		var pending *time.Timer
		reload := func() {
			if err := v.ReadInConfig(); err != nil {
				log.Warn("failed to reload config %s: %v", path, err)
				onReload(DomainConfig{}, err)
				return
			}
			cfg, err := LoadDomain(v)
			onReload(cfg, err)
		}
		for {
			select {
			case <-ctx.Done():
				if pending != nil {
					pending.Stop()
				}
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(defaultDebounce, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config watch error on %s: %v", path, err)
			}
		}
	}()
	return nil
}
