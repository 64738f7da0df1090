package git

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// statusLabels maps a porcelain v1 status letter to its display label.
// The same letters are valid in both the index and worktree columns.
var statusLabels = map[byte]string{
	'A': "added",
	'M': "modified",
	'D': "deleted",
	'R': "renamed",
	'C': "renamed",
	'T': "typechange",
}

// conflictCodes are the two-letter porcelain codes that indicate an
// unresolved merge conflict.
var conflictCodes = map[string]struct{}{
	"DD": {}, "AU": {}, "UD": {}, "UA": {}, "DU": {}, "AA": {}, "UU": {},
}

// Status collects the worktree's porcelain status: current branch, changed
// files with their staged/unstaged labels, and ahead/behind counts relative
// to the upstream branch.
func (r *Repository) Status() (StatusSummary, error) {
	branch, err := r.CurrentBranch()
	if err != nil {
		return StatusSummary{}, fmt.Errorf("failed to resolve current branch: %w", err)
	}

	output, err := r.runGitCommandRaw("status", "--porcelain", "--untracked-files=all")
	if err != nil {
		return StatusSummary{}, err
	}

	summary := StatusSummary{
		Branch: branch,
		Files:  parseStatusEntries(output),
	}

	ahead, behind, err := r.aheadBehind()
	if err != nil {
		return StatusSummary{}, err
	}
	summary.Ahead = ahead
	summary.Behind = behind
	return summary, nil
}

// parseStatusEntries converts `git status --porcelain` output into file
// entries. A file that is both staged and modified again in the worktree
// produces two entries, mirroring git's two status columns. Conflicted files
// produce a single "conflicted" entry.
func parseStatusEntries(output string) []FileStatus {
	files := []FileStatus{}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if len(line) < 4 {
			continue
		}
		code := line[:2]
		path := statusEntryPath(line[3:])
		if path == "" {
			continue
		}

		if _, conflicted := conflictCodes[code]; conflicted {
			files = append(files, FileStatus{Path: path, Status: "conflicted", Staged: false})
			continue
		}
		if code == "??" {
			files = append(files, FileStatus{Path: path, Status: "untracked", Staged: false})
			continue
		}
		if code == "!!" {
			continue // ignored entries are never shown
		}

		if label, ok := statusLabels[code[0]]; ok {
			files = append(files, FileStatus{Path: path, Status: label, Staged: true})
		}
		if label, ok := statusLabels[code[1]]; ok {
			files = append(files, FileStatus{Path: path, Status: label, Staged: false})
		}
	}
	return files
}

// statusEntryPath extracts the file path from a porcelain entry, unquoting
// git's C-style quoting and using the destination side of renames.
func statusEntryPath(field string) string {
	if idx := strings.Index(field, " -> "); idx >= 0 {
		field = field[idx+4:]
	}
	field = strings.TrimSpace(field)
	if len(field) >= 2 && strings.HasPrefix(field, `"`) && strings.HasSuffix(field, `"`) {
		if unquoted, err := strconv.Unquote(field); err == nil {
			return unquoted
		}
	}
	return field
}

// aheadBehind returns how many commits the current branch is ahead of and
// behind its upstream. Both are zero when no upstream is configured.
func (r *Repository) aheadBehind() (ahead, behind int, err error) {
	output, cmdErr := r.runGitCommand("rev-list", "--left-right", "--count", "@{upstream}...HEAD")
	if cmdErr != nil {
		if isNoUpstreamError(cmdErr.Error()) || isUnbornHeadError(cmdErr.Error()) {
			slog.Debug("[DEBUG-GIT] aheadBehind: no upstream tracking branch",
				"path", r.path, "error", cmdErr)
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("failed to count ahead/behind: %w", cmdErr)
	}

	fields := strings.Fields(output)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected rev-list count output: %q", output)
	}
	behind, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse behind count %q: %w", fields[0], err)
	}
	ahead, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse ahead count %q: %w", fields[1], err)
	}
	return ahead, behind, nil
}
