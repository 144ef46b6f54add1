package syncer

import "time"

// Winner is the side whose version of a record is kept.
type Winner int

const (
	// LocalWins keeps the local row and re-uploads it.
	LocalWins Winner = iota
	// RemoteWins overwrites the local row with the remote document.
	RemoteWins
)

func (w Winner) String() string {
	if w == RemoteWins {
		return "remote"
	}
	return "local"
}

// Resolve picks the newer of two versions of a record. The remote version
// wins only when strictly newer; ties and a missing remote timestamp keep the
// local version. A missing timestamp is the zero time.
func Resolve(local, remote time.Time) Winner {
	if remote.After(local) {
		return RemoteWins
	}
	return LocalWins
}
