package gateway

import "testing"

// Hub tests exercise routing only; no sockets are involved and the writer
// pump stays stopped, so messages can be read straight off the queue.

func queued(c *conn) []any {
	var out []any
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestHubForwardsBetweenRoles(t *testing.T) {
	h := NewHub(nil)
	client := newConn(nil)
	pro := newConn(nil)
	h.join("s-1", RoleClient, client)
	h.join("s-1", RoleProfessional, pro)

	if !h.sendTo("s-1", RoleProfessional, "ping") {
		t.Fatal("professional end should be reachable")
	}
	if msgs := queued(pro); len(msgs) != 1 || msgs[0] != "ping" {
		t.Fatalf("professional queue: %v", msgs)
	}
	if msgs := queued(client); len(msgs) != 0 {
		t.Fatalf("client must not receive targeted sends: %v", msgs)
	}

	h.broadcast("s-1", "all")
	if msgs := queued(client); len(msgs) != 1 || msgs[0] != "all" {
		t.Fatalf("client broadcast queue: %v", msgs)
	}
	if msgs := queued(pro); len(msgs) != 1 {
		t.Fatalf("professional broadcast queue: %v", msgs)
	}
}

func TestHubSendToAbsentPeer(t *testing.T) {
	h := NewHub(nil)
	client := newConn(nil)
	h.join("s-1", RoleClient, client)

	if h.sendTo("s-1", RoleProfessional, "ping") {
		t.Fatal("absent peer must report unreachable")
	}
	if h.sendTo("s-unknown", RoleClient, "ping") {
		t.Fatal("unknown session must report unreachable")
	}
}

func TestHubLeaveCleansUp(t *testing.T) {
	h := NewHub(nil)
	client := newConn(nil)
	pro := newConn(nil)
	h.join("s-1", RoleClient, client)
	h.join("s-1", RoleProfessional, pro)

	h.leave("s-1", RoleClient, client)
	if h.sendTo("s-1", RoleClient, "ping") {
		t.Fatal("departed end must be unreachable")
	}
	h.leave("s-1", RoleProfessional, pro)

	h.mu.Lock()
	remaining := len(h.sessions)
	h.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("session entry should be dropped, %d left", remaining)
	}
}

func TestHubReconnectDisplacesPrevious(t *testing.T) {
	h := NewHub(nil)
	first := newConn(nil)
	second := newConn(nil)
	h.join("s-1", RoleClient, first)
	h.join("s-1", RoleClient, second)

	select {
	case <-first.done:
	default:
		t.Fatal("displaced connection should be closed")
	}

	h.sendTo("s-1", RoleClient, "ping")
	if msgs := queued(second); len(msgs) != 1 {
		t.Fatalf("reconnect should receive sends: %v", msgs)
	}
	// A stale leave from the displaced connection must not evict the new one.
	h.leave("s-1", RoleClient, first)
	if !h.sendTo("s-1", RoleClient, "still here") {
		t.Fatal("new connection must survive the stale leave")
	}
}
