package remotefs

import (
	"context"
	"path"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"

	"rsynctui/backend/internal/types"
)

// Execer is the remote-exec collaborator. A non-zero exit status is reported in the result;
// err means the command could not be run at all.
type Execer interface {
	Execute(ctx context.Context, command string) (types.ExecResult, error)
}

// listingBinaries and listingFlags are tried in order, long-iso timestamps first.
var (
	listingBinaries = []string{"/bin/ls", "/usr/bin/ls", "ls"}
	listingFlags    = []string{"-lA --time-style=long-iso", "-lA"}
)

// ListingCommands returns every listing command variant for dir, in the order they are tried.
func ListingCommands(dir string) []string {
	quoted := shellescape.Quote(dir)
	cmds := make([]string, 0, len(listingBinaries)*len(listingFlags))
	for _, bin := range listingBinaries {
		for _, flags := range listingFlags {
			cmds = append(cmds, bin+" "+flags+" "+quoted)
		}
	}
	return cmds
}

// listingFieldCount is 7 metadata tokens plus the name.
const listingFieldCount = 8

// ParseListing turns `ls -l` output into entries. "total" lines and lines with fewer than eight
// fields are skipped. The name is everything after the seventh token, kept verbatim, so a name
// whose internal whitespace shifts the metadata prefix is misparsed or dropped.
func ParseListing(output string) []types.DirectoryEntry {
	var entries []types.DirectoryEntry
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "total") {
			continue
		}
		fields := splitN(line, listingFieldCount)
		if len(fields) < listingFieldCount {
			continue
		}
		entries = append(entries, types.DirectoryEntry{
			Type:         types.EntryTypeFromPerms(fields[0]),
			Permissions:  fields[0],
			Owner:        fields[2],
			Group:        fields[3],
			Size:         fields[4],
			ModifiedDate: fields[5],
			ModifiedTime: fields[6],
			Name:         fields[7],
		})
	}
	return entries
}

// splitN splits s on runs of whitespace into at most n fields. The last field is the untouched
// remainder of the line after the (n-1)th token and its separating whitespace.
func splitN(s string, n int) []string {
	var fields []string
	rest := strings.TrimLeft(s, " \t")
	for rest != "" && len(fields) < n-1 {
		i := strings.IndexAny(rest, " \t")
		if i < 0 {
			fields = append(fields, rest)
			return fields
		}
		fields = append(fields, rest[:i])
		rest = strings.TrimLeft(rest[i:], " \t")
	}
	if rest != "" {
		fields = append(fields, rest)
	}
	return fields
}

// Lister is the remote listing service.
type Lister struct {
	exec   Execer
	logger zerolog.Logger
}

func NewLister(exec Execer, logger zerolog.Logger) *Lister {
	return &Lister{
		exec:   exec,
		logger: logger.With().Str("component", "remotefs").Logger(),
	}
}

// List returns the entries of dir, led by the ".." row unless dir is the root.
// It never fails: when every listing variant fails the result is empty.
func (l *Lister) List(ctx context.Context, dir string) []types.DirectoryEntry {
	dir = CleanPath(dir)
	for _, cmd := range ListingCommands(dir) {
		res, err := l.exec.Execute(ctx, cmd)
		if err != nil {
			l.logger.Debug().Err(err).Str("cmd", cmd).Msg("listing command could not run")
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		if !res.OK() {
			l.logger.Debug().Str("cmd", cmd).Int("status", res.ExitStatus).Str("stderr", strings.TrimSpace(res.Stderr)).Msg("listing command failed")
			continue
		}

		entries := ParseListing(res.Stdout)
		if dir != "/" {
			entries = append([]types.DirectoryEntry{types.ParentEntry()}, entries...)
		}
		l.logger.Debug().Str("path", dir).Int("entries", len(entries)).Msg("listed")
		return entries
	}
	l.logger.Warn().Str("path", dir).Msg("all listing commands failed")
	return nil
}

// CleanPath normalizes a remote absolute path. Relative input is anchored at the root.
func CleanPath(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}

// Parent returns the parent of dir; the root is its own parent.
func Parent(dir string) string {
	return path.Dir(CleanPath(dir))
}

// Join appends name to dir.
func Join(dir, name string) string {
	return path.Join(CleanPath(dir), name)
}
