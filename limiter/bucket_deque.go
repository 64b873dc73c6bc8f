package limiter

const defaultDequeCapacity = 16

// Bucket aggregates every request whose timestamp quantizes to Tick.
type Bucket struct {
	Tick  int64
	Count int64
}

// BucketDeque is a ring buffer of buckets with O(1) access at both ends.
// It does not enforce tick ordering; callers append in ascending tick order.
type BucketDeque struct {
	buf  []Bucket
	head int
	size int
}

func NewBucketDeque(capacity int) *BucketDeque {
	if capacity <= 0 {
		capacity = defaultDequeCapacity
	}
	return &BucketDeque{buf: make([]Bucket, capacity)}
}

func (d *BucketDeque) Size() int {
	return d.size
}

func (d *BucketDeque) Append(b Bucket) {
	if d.size == len(d.buf) {
		d.grow()
	}
	d.buf[d.index(d.size)] = b
	d.size++
}

func (d *BucketDeque) PeekHead() (Bucket, bool) {
	if d.size == 0 {
		return Bucket{}, false
	}
	return d.buf[d.head], true
}

func (d *BucketDeque) PeekTail() (Bucket, bool) {
	if d.size == 0 {
		return Bucket{}, false
	}
	return d.buf[d.index(d.size-1)], true
}

func (d *BucketDeque) RemoveHead() (Bucket, bool) {
	if d.size == 0 {
		return Bucket{}, false
	}
	b := d.buf[d.head]
	d.buf[d.head] = Bucket{}
	d.head = d.index(1)
	d.size--
	return b, true
}

func (d *BucketDeque) RemoveTail() (Bucket, bool) {
	if d.size == 0 {
		return Bucket{}, false
	}
	i := d.index(d.size - 1)
	b := d.buf[i]
	d.buf[i] = Bucket{}
	d.size--
	return b, true
}

// tail returns a pointer to the newest bucket so its count can be bumped in place.
func (d *BucketDeque) tail() *Bucket {
	if d.size == 0 {
		return nil
	}
	return &d.buf[d.index(d.size-1)]
}

func (d *BucketDeque) index(offset int) int {
	return (d.head + offset) % len(d.buf)
}

func (d *BucketDeque) grow() {
	next := make([]Bucket, len(d.buf)*2)
	for i := 0; i < d.size; i++ {
		next[i] = d.buf[d.index(i)]
	}
	d.buf = next
	d.head = 0
}
