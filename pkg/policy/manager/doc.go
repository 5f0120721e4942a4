// Package manager keeps the engine's constitution in sync with its source.
//
// A Manager performs the initial load, optionally watches the constitution
// file with fsnotify, and reloads on change after a debounce interval.
// Reload failures are reported as events and logged; the engine keeps the
// last good document. ReloadNow triggers a reload on demand, which is how
// the serve command handles SIGHUP.
//
//	m, err := manager.New(cfg, eng, source.NewFileSource(path, logger), logger)
//	if err != nil {
//	    return err
//	}
//	if err := m.Start(ctx); err != nil {
//	    return err
//	}
//	defer m.Stop()
package manager
