package metrics

// TaggedObserver stamps every event with tags from a lookup taken at record
// time. Tags already present on the event win.
type TaggedObserver struct {
	inner Observer
	tags  func() map[string]string
}

func NewTaggedObserver(inner Observer, tags func() map[string]string) *TaggedObserver {
	return &TaggedObserver{inner: OrNoop(inner), tags: tags}
}

func (o *TaggedObserver) RecordEvent(ev MetricsEvent) {
	if o.tags == nil {
		o.inner.RecordEvent(ev)
		return
	}
	extra := o.tags()
	if len(extra) == 0 {
		o.inner.RecordEvent(ev)
		return
	}
	merged := make(map[string]string, len(ev.Tags)+len(extra))
	for k, v := range extra {
		if v != "" {
			merged[k] = v
		}
	}
	for k, v := range ev.Tags {
		merged[k] = v
	}
	ev.Tags = merged
	o.inner.RecordEvent(ev)
}
