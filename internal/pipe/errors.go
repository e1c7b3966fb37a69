package pipe

import "errors"

// Handle acquisition errors.
var (
	// ErrChannelBusy indicates the channel already has a live handle of the
	// requested kind.
	ErrChannelBusy = errors.New("channel handle already taken")

	// ErrStateBusy indicates the state cell already has a live handle of the
	// requested kind.
	ErrStateBusy = errors.New("state handle already taken")
)

// ErrChannelEmpty indicates Pop found nothing queued. Consumers are expected
// to see it often; poll Empty first or treat it as "nothing ready".
var ErrChannelEmpty = errors.New("channel empty")
