// Package git loads the constitution from a Git repository.
//
// A Repository keeps a local checkout of one branch. Source adapts it to
// the manager's source.Source so the document is read from the checkout,
// and Poller pulls the remote on an interval and asks the manager to
// reload when a commit touches the constitution file:
//
//	repo, err := git.NewRepository(&cfg.Document.Git)
//	src := git.NewSource(repo)
//	mgr, err := manager.New(&manager.Config{}, eng, src, logger)
//	poller := git.NewPoller(repo, cfg.Document.Git.Poll.Interval, mgr.ReloadNow)
//	err = poller.Start(ctx)
//
// A commit whose document the engine rejects is remembered and not retried;
// the engine keeps serving the last accepted document.
//
// Authentication supports HTTPS tokens, SSH keys and public repositories.
package git
