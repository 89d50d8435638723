package git

import (
	"fmt"

	"github.com/go-git/go-git/v5"
)

// HeadInfo describes the checked-out commit of a repository.
type HeadInfo struct {
	Commit string
	Branch string
}

// DevVersion returns a Composer-style branch version ("dev-main") or "" for a detached HEAD.
func (h HeadInfo) DevVersion() string {
	if h.Branch == "" {
		return ""
	}
	return "dev-" + h.Branch
}

// Head resolves HEAD of the repository containing dir. Parent directories are searched for
// the .git directory.
func Head(dir string) (HeadInfo, error) {
	repository, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return HeadInfo{}, fmt.Errorf("open repository: %w", err)
	}
	ref, err := repository.Head()
	if err != nil {
		return HeadInfo{}, fmt.Errorf("resolve HEAD: %w", err)
	}

	info := HeadInfo{Commit: ref.Hash().String()}
	if ref.Name().IsBranch() {
		info.Branch = ref.Name().Short()
	}
	return info, nil
}
