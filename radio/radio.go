package radio

import "context"

// Source produces fixed-size u8 I/Q blocks on the channel handed to its
// constructor. Connect opens and tunes the hardware; Start streams until the
// context is cancelled or the driver gives up. Stop asks a blocked Start to
// return; Close waits for it and releases the device.
//
// Block geometry is fixed by config.IQBlockSize so every backend feeds the
// same transform.
type Source interface {
	Connect() error
	Start(ctx context.Context) error
	Stop()
	Close() error
}
