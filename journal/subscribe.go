package journal

// Subscribe registers a listener for published records. buffer is the channel
// capacity; a listener that falls more than buffer records behind is dropped
// and its channel closed. cancel unsubscribes and closes the channel.
func (j *Journal) Subscribe(buffer int) (<-chan Record, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Record, buffer)

	j.subMu.Lock()
	id := j.nextID
	j.nextID++
	j.subs[id] = ch
	j.subMu.Unlock()

	cancel := func() {
		j.subMu.Lock()
		defer j.subMu.Unlock()
		if c, ok := j.subs[id]; ok {
			delete(j.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers rec to every subscriber without blocking.
func (j *Journal) Publish(rec Record) {
	j.subMu.Lock()
	defer j.subMu.Unlock()
	for id, ch := range j.subs {
		select {
		case ch <- rec:
		default:
			j.log.Warn().Int("subscriber", id).Uint64("seq", rec.Entry.Seq).Msg("dropping slow journal subscriber")
			delete(j.subs, id)
			close(ch)
		}
	}
}
