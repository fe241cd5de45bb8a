package mediatest

import "sync"

// Prefs is an in-memory media.VolumePreference.
type Prefs struct {
	mu     sync.Mutex
	volume float64
	writes int
	err    error
}

// NewPrefs returns a preference holding volume.
func NewPrefs(volume float64) *Prefs {
	return &Prefs{volume: volume}
}

// Volume implements media.VolumePreference.
func (p *Prefs) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetVolume implements media.VolumePreference.
func (p *Prefs) SetVolume(v float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.volume = v
	p.writes++
	return nil
}

// FailWrites makes SetVolume return err.
func (p *Prefs) FailWrites(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Writes returns how many volume writes succeeded.
func (p *Prefs) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}
