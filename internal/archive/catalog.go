package archive

import (
	"context"
	"time"
)

// Kind tells how a match came to be archived
type Kind string

const (
	// KindMatch is a match archived because the monitored player finished it
	KindMatch Kind = "match"
	// KindDeathmatch is a match referenced by a participant's deathmatch history
	KindDeathmatch Kind = "deathmatch"
	// KindOther is a match referenced only by a participant's general history
	KindOther Kind = "other"
)

// Entry is one catalog record. Parent and Player are empty for KindMatch.
type Entry struct {
	MatchID    string
	Dir        string
	Kind       Kind
	Parent     string
	Player     string
	ArchivedAt time.Time
}

// Catalog indexes what has been written to the archive tree
type Catalog interface {
	Record(ctx context.Context, e Entry) error

	// Lookup returns the directory name a match id was first archived under
	Lookup(ctx context.Context, matchID string) (dir string, found bool, err error)
}

type nopCatalog struct{}

func (nopCatalog) Record(context.Context, Entry) error { return nil }

func (nopCatalog) Lookup(context.Context, string) (string, bool, error) { return "", false, nil }
