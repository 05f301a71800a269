package kvstore

type batchOp struct {
	key    []byte
	value  []byte
	delete bool
}

// Batch collects puts and deletes applied atomically by Store.Write. Keys and
// values are copied on insert so callers may reuse their buffers.
type Batch struct {
	ops []batchOp
}

func (b *Batch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{key: cloneBytes(key), value: cloneBytes(value)})
}

func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: cloneBytes(key), delete: true})
}

func (b *Batch) Len() int {
	return len(b.ops)
}

func (b *Batch) Reset() {
	b.ops = b.ops[:0]
}
