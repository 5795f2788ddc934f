// Package conflict decides which side of a diverged tracked file wins.
// Resolution only marks the winning direction dirty; the syncers do the
// actual propagation on a later pass.
package conflict

import (
	"fmt"
	"path"
	"strings"

	"github.com/dl-alexandre/gsyncd/internal/sync/index"
	"github.com/dl-alexandre/gsyncd/internal/types"
	"github.com/dl-alexandre/gsyncd/internal/utils"
)

const (
	// PolicyLastWriterWins compares modification times and keeps the
	// newer side. Ties keep the remote copy.
	PolicyLastWriterWins = "last-writer-wins"
	// PolicyLocalWins always pushes the local copy
	PolicyLocalWins = "local-wins"
	// PolicyRemoteWins always pulls the remote copy
	PolicyRemoteWins = "remote-wins"
	// PolicyRenameBoth keeps both copies: the local file is renamed
	// aside and the remote copy takes the original path.
	PolicyRenameBoth = "rename-both"
)

// ValidPolicy reports whether name is a known conflict policy
func ValidPolicy(name string) bool {
	switch name {
	case PolicyLastWriterWins, PolicyLocalWins, PolicyRemoteWins, PolicyRenameBoth:
		return true
	}
	return false
}

// Effective returns the root's policy, falling back to the global
// default when the root has none set.
func Effective(rootPolicy, defaultPolicy string) string {
	if rootPolicy != "" {
		return rootPolicy
	}
	if defaultPolicy != "" {
		return defaultPolicy
	}
	return PolicyLastWriterWins
}

// Resolution is the outcome for one conflicting tracked file
type Resolution struct {
	// Direction the winning change propagates in
	Direction types.SyncDirection
	// RenameLocalTo, when non-empty, is the relative path the local
	// copy moves to before the remote copy is pulled in.
	RenameLocalTo string
}

// Resolve applies a policy to one conflicting entry
func Resolve(file index.TrackedFile, policy string) (Resolution, error) {
	switch policy {
	case PolicyLocalWins:
		return Resolution{Direction: types.DirectionLocalToRemote}, nil
	case PolicyRemoteWins:
		return Resolution{Direction: types.DirectionRemoteToLocal}, nil
	case PolicyRenameBoth:
		return Resolution{
			Direction:     types.DirectionRemoteToLocal,
			RenameLocalTo: conflictName(file.RelativePath),
		}, nil
	case PolicyLastWriterWins, "":
		if file.LocalMTime > file.RemoteMTime {
			return Resolution{Direction: types.DirectionLocalToRemote}, nil
		}
		return Resolution{Direction: types.DirectionRemoteToLocal}, nil
	default:
		return Resolution{}, utils.NewSyncError(utils.CodeInvalidArgument,
			fmt.Sprintf("unknown conflict policy %q", policy)).
			WithContext("path", file.RelativePath).
			Build()
	}
}

// conflictName derives the aside-path for a kept local copy, e.g.
// "notes/doc.txt" -> "notes/doc (conflicted copy).txt".
func conflictName(relPath string) string {
	dir, base := path.Split(relPath)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return dir + stem + " (conflicted copy)" + ext
}
