package server

import "github.com/rs/zerolog"

// Broadcaster fans a message out to every registered peer except an optional sender.
type Broadcaster struct {
	registry *Registry
	log      zerolog.Logger
}

// NewBroadcaster returns a Broadcaster delivering to the peers in registry.
func NewBroadcaster(registry *Registry, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, log: logger}
}

// Broadcast queues message on every registered peer except exclude (nil excludes
// nobody). A peer that is closed or not keeping up is skipped; the broadcast
// always continues with the remaining peers and never reports failure.
func (b *Broadcaster) Broadcast(message string, exclude *Peer) {
	delivered := 0
	var skipped []string

	// Send never blocks, so holding the registry lock here is bounded.
	b.registry.ForEachExcept(exclude, func(p *Peer) {
		if err := p.Send(message); err != nil {
			skipped = append(skipped, p.Addr()+": "+err.Error())
			return
		}
		delivered++
	})

	b.log.Debug().
		Int("delivered", delivered).
		Strs("skipped", skipped).
		Msg("Broadcast fanned out")
}
