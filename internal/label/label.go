// Package label maps user-facing Gmail labels to IMAP folder names.
package label

import (
	"strings"

	"github.com/nhle/mail-notifier/internal/model"
)

const (
	Inbox   = "INBOX"
	AllMail = "[Gmail]/All Mail"

	systemPrefix = "[Gmail]/"
)

var systemLabels = []string{
	"All Mail", "Drafts", "Sent Mail", "Spam", "Starred", "Trash",
}

// Label is a resolved label: the canonical display form and the folder it
// lives in on the server.
type Label struct {
	Label  string
	Folder string
}

// Resolve converts a label typed by the user into its folder. Surrounding
// whitespace is ignored. Inbox and the system labels match case-insensitively;
// any other label is used as-is except that a leading slash, a trailing
// slash, and every slash directly following another slash are replaced with
// an underscore, so that no unintended nested folder is addressed.
func Resolve(s string) Label {
	t := strings.TrimSpace(s)
	if t == "" {
		return Label{}
	}

	if strings.EqualFold(t, Inbox) {
		return Label{Label: Inbox, Folder: Inbox}
	}

	for _, l := range systemLabels {
		if strings.EqualFold(l, t) {
			return Label{Label: l, Folder: systemPrefix + l}
		}
	}

	return Label{Label: t, Folder: folderName(t)}
}

func folderName(t string) string {
	r := []rune(t)
	out := make([]rune, len(r))
	last := len(r) - 1
	for i, c := range r {
		switch {
		case c != '/':
			out[i] = c
		case i == 0, i == last, r[i-1] == '/':
			out[i] = '_'
		default:
			out[i] = c
		}
	}
	return string(out)
}

// Folders returns the folders watched for the given notification mode. In
// label mode, blank labels are skipped and labels resolving to the same
// folder are listed once.
func Folders(mode model.NotifyMode, labels []string) []Label {
	switch mode {
	case model.NotifyAny:
		return []Label{{Label: "All Mail", Folder: AllMail}}
	case model.NotifyLabels:
		seen := make(map[string]bool, len(labels))
		var out []Label
		for _, s := range labels {
			l := Resolve(s)
			if l.Folder == "" || seen[l.Folder] {
				continue
			}
			seen[l.Folder] = true
			out = append(out, l)
		}
		return out
	default:
		return []Label{{Label: Inbox, Folder: Inbox}}
	}
}
