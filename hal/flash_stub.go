package hal

import "errors"

var (
	// ErrFlashWriteRequiresErase is returned when a write would flip a bit
	// from 0 to 1.
	ErrFlashWriteRequiresErase = errors.New("flash write requires erase")
	// ErrFlashNotReady is returned before Init succeeded.
	ErrFlashNotReady = errors.New("flash not initialized")
	// ErrFlashUnaligned is returned for an erase address that is not the
	// start of a sector.
	ErrFlashUnaligned = errors.New("flash address not sector aligned")
)

// StubFlash is a device with no backing storage.
type StubFlash struct{}

func (StubFlash) Init() error { return ErrNotImplemented }

func (StubFlash) Read(addr uint32, p []byte) error {
	_ = addr
	_ = p
	return ErrNotImplemented
}

func (StubFlash) Write(addr uint32, p []byte) error {
	_ = addr
	_ = p
	return ErrNotImplemented
}

func (StubFlash) EraseSector(addr uint32) error {
	_ = addr
	return ErrNotImplemented
}

func (StubFlash) SectorInfo(idx int) (uint32, uint32, error) {
	_ = idx
	return 0, 0, ErrNotImplemented
}
