package hfp

// Registry is the owned collection of per-peer connection contexts. It
// replaces an intrusive linked list of sessions with three owned maps:
// external callers hold non-owning references by CID, address, or SCO
// handle, and must cope with a lookup miss without crashing.
type Registry struct {
	byCID     map[RFCOMMCID]*Connection
	byAddress map[Address]*Connection
	bySCO     map[SCOHandle]*Connection
	maxConns  int
}

// NewRegistry builds an empty registry. maxConns of 0 means unbounded.
func NewRegistry(maxConns int) *Registry {
	return &Registry{
		byCID:     make(map[RFCOMMCID]*Connection),
		byAddress: make(map[Address]*Connection),
		bySCO:     make(map[SCOHandle]*Connection),
		maxConns:  maxConns,
	}
}

// Add inserts conn under cid, indexing it by address too. It returns
// ErrResourceExhausted if the registry is already at its configured
// connection ceiling.
func (r *Registry) Add(cid RFCOMMCID, conn *Connection) error {
	if r.maxConns > 0 && len(r.byCID) >= r.maxConns {
		return ErrResourceExhausted
	}
	conn.RFCOMMCID = cid
	r.byCID[cid] = conn
	r.byAddress[conn.Address] = conn
	return nil
}

// Remove drops the connection for cid from every index.
func (r *Registry) Remove(cid RFCOMMCID) {
	conn, ok := r.byCID[cid]
	if !ok {
		return
	}
	delete(r.byCID, cid)
	delete(r.byAddress, conn.Address)
	if conn.SCOHandle != 0 {
		delete(r.bySCO, conn.SCOHandle)
	}
}

// ByCID looks up a connection by its RFCOMM CID.
func (r *Registry) ByCID(cid RFCOMMCID) (*Connection, bool) {
	conn, ok := r.byCID[cid]
	return conn, ok
}

// ByAddress looks up a connection by peer address.
func (r *Registry) ByAddress(addr Address) (*Connection, bool) {
	conn, ok := r.byAddress[addr]
	return conn, ok
}

// BySCOHandle looks up a connection by its SCO/eSCO handle.
func (r *Registry) BySCOHandle(handle SCOHandle) (*Connection, bool) {
	conn, ok := r.bySCO[handle]
	return conn, ok
}

// BindSCOHandle indexes conn by its newly assigned SCO handle. Called once
// the transport reports the synchronous link is up.
func (r *Registry) BindSCOHandle(conn *Connection, handle SCOHandle) {
	r.bySCO[handle] = conn
}

// UnbindSCOHandle removes the SCO-handle index entry for conn, if any.
func (r *Registry) UnbindSCOHandle(conn *Connection) {
	if conn.SCOHandle != 0 {
		delete(r.bySCO, conn.SCOHandle)
	}
}

// Len returns the number of tracked connections.
func (r *Registry) Len() int { return len(r.byCID) }

// All returns every tracked connection; order is unspecified.
func (r *Registry) All() []*Connection {
	out := make([]*Connection, 0, len(r.byCID))
	for _, c := range r.byCID {
		out = append(out, c)
	}
	return out
}
