package chat

import (
	"log"

	"github.com/filmcrew/setchat/internal/stats"
)

// Router fans an event out to every session registered for a project.
// Delivery is fire-and-forget per handle: a session whose send queue is
// full or closed is dropped and deregistered rather than allowed to
// stall its siblings.
type Router struct {
	registry *Registry
	log      *log.Logger
	stats    stats.StatsProvider
}

func NewRouter(registry *Registry, logger *log.Logger, su stats.StatsProvider) *Router {
	return &Router{
		registry: registry,
		log:      logger,
		stats:    su,
	}
}

// Publish delivers the event to all current sessions of the project.
// Events published sequentially by one caller reach each recipient in
// publish order; no cross-caller ordering is guaranteed.
func (rt *Router) Publish(projectID string, event *ServerEvent) {
	sessions := rt.registry.snapshot(projectID)

	var dead []*Session
	for _, s := range sessions {
		if !s.queueEvent(event) {
			dead = append(dead, s)
		}
	}

	// A failed send means the handle is gone or hopelessly backlogged.
	// Drop it, then emit the deferred "left" notice so presence state
	// does not silently diverge from reality.
	for _, s := range dead {
		if !rt.registry.Deregister(projectID, s) {
			continue
		}

		rt.log.Printf("dropping unresponsive session for user %q in project %q", s.identity.UserID, projectID)
		rt.stats.Incr(StatBroadcastDrops)
		s.close(reasonSlowConsumer)
		rt.Publish(projectID, LeftEvent(projectID, s.identity))
	}
}
