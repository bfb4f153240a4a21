package relay

import "time"

const roomCapacity = 2

// Room holds at most two participants. The first one to join is the
// initiator.
type Room struct {
	ID        string
	Members   []*Peer
	CreatedAt time.Time
}

func (r *Room) full() bool {
	return len(r.Members) >= roomCapacity
}

func (r *Room) empty() bool {
	return len(r.Members) == 0
}

func (r *Room) add(p *Peer) {
	r.Members = append(r.Members, p)
}

func (r *Room) remove(p *Peer) bool {
	for i, m := range r.Members {
		if m == p {
			r.Members = append(r.Members[:i], r.Members[i+1:]...)
			return true
		}
	}
	return false
}

// other returns the participant that is not p, if any.
func (r *Room) other(p *Peer) *Peer {
	for _, m := range r.Members {
		if m != p {
			return m
		}
	}
	return nil
}
