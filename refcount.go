package sqdb

// refCount is the count of live aliases of one handle.
//
// Aliases made from one another share the counter, so acquiring through
// any of them is seen by all. The counter is plain memory: a handle and
// its aliases belong to one goroutine at a time.
type refCount struct {
	n *uint
}

// acquire adds a reference, allocating the counter on first use.
func (r *refCount) acquire() {
	if r.n == nil {
		r.n = new(uint)
	}
	*r.n++
}

// release drops this alias's reference and reports how many remain.
// The caller frees the underlying resource when it returns 0.
// After release the alias holds no counter.
func (r *refCount) release() uint {
	if r.n == nil || *r.n == 0 {
		panic("sqdb: refCount released without a reference")
	}
	*r.n--
	v := *r.n
	r.n = nil
	return v
}

// share returns a new alias of r's counter holding its own reference.
func (r *refCount) share() refCount {
	c := refCount{n: r.n}
	c.acquire()
	return c
}

// count reports the live references, for tests and debugging.
func (r *refCount) count() uint {
	if r.n == nil {
		return 0
	}
	return *r.n
}
