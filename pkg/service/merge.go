package service

import (
	"reflect"
	"slices"
)

// Merge folds incoming definitions into current by service name. Routes and
// aggregates are appended, skipping exact duplicates. A set baseUrl or
// message_queue on the incoming side replaces the current one. Unknown
// services are appended. Neither input is modified.
func Merge(current, incoming []Service) []Service {
	out := make([]Service, 0, len(current)+len(incoming))
	index := make(map[string]int, len(current))
	for _, svc := range current {
		index[svc.Name] = len(out)
		out = append(out, svc.Clone())
	}

	for _, in := range incoming {
		i, ok := index[in.Name]
		if !ok {
			index[in.Name] = len(out)
			out = append(out, in.Clone())
			continue
		}
		merged := &out[i]
		if in.BaseURL != "" {
			merged.BaseURL = in.BaseURL
		}
		if in.MessageQueue != nil {
			mq := *in.MessageQueue
			merged.MessageQueue = &mq
		}
		for _, r := range in.Routes {
			if !containsEqual(merged.Routes, r) {
				merged.Routes = append(merged.Routes, r)
			}
		}
		for _, a := range in.Aggregates {
			if !containsEqual(merged.Aggregates, a) {
				merged.Aggregates = append(merged.Aggregates, a)
			}
		}
	}
	return out
}

func containsEqual[T any](items []T, v T) bool {
	return slices.ContainsFunc(items, func(item T) bool {
		return reflect.DeepEqual(item, v)
	})
}

// Clone returns a copy whose slices can be appended to independently.
func (s Service) Clone() Service {
	c := s
	c.Routes = slices.Clone(s.Routes)
	c.Aggregates = slices.Clone(s.Aggregates)
	return c
}

// Find returns the service named name.
func Find(services []Service, name string) (*Service, bool) {
	for i := range services {
		if services[i].Name == name {
			return &services[i], true
		}
	}
	return nil, false
}
