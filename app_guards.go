package main

import (
	"errors"

	gitpkg "github.com/ManMan88/wtview/internal/git"
	"github.com/ManMan88/wtview/internal/store"
)

func (a *App) requireRepo() (*gitpkg.Repository, error) {
	a.repoMu.RLock()
	repo := a.repo
	a.repoMu.RUnlock()
	if repo == nil {
		return nil, errors.New("no repository is open")
	}
	return repo, nil
}

func (a *App) requireStore() (*store.Store, error) {
	if a.recent == nil {
		return nil, errors.New("recent repository store is unavailable")
	}
	return a.recent, nil
}
