// Package localstore holds one florist's promotions and subscribers entirely
// in process, persisted as a JSON snapshot in a local key-value store.
package localstore

import (
	"github.com/tinywideclouds/go-florist-service/pkg/florist"
)

// State is the whole single-tenant state; it is also the persisted snapshot.
type State struct {
	Promotions  []florist.Promotion  `json:"promotions"`
	Subscribers []florist.Subscriber `json:"subscribers"`
	Florist     florist.Florist      `json:"florist"`
}

// Action is the closed set of transitions accepted by Reduce.
type Action interface {
	isAction()
}

// LoadSnapshot replaces the state with a persisted snapshot.
type LoadSnapshot struct{ State State }

// AddPromotion prepends an already stamped promotion.
type AddPromotion struct{ Promotion florist.Promotion }

// UpdatePromotion merges Patch into the promotion with ID.
type UpdatePromotion struct {
	ID    string
	Patch florist.PromotionPatch
}

// DeletePromotion removes the promotion with ID.
type DeletePromotion struct{ ID string }

// AddSubscriber appends an already stamped subscriber unless its email is known.
type AddSubscriber struct{ Subscriber florist.Subscriber }

// UpdateFlorist merges Patch into the florist profile.
type UpdateFlorist struct{ Patch florist.FloristPatch }

func (LoadSnapshot) isAction()    {}
func (AddPromotion) isAction()    {}
func (UpdatePromotion) isAction() {}
func (DeletePromotion) isAction() {}
func (AddSubscriber) isAction()   {}
func (UpdateFlorist) isAction()   {}

// Reduce returns the state that follows s after a. It never mutates s and
// returns s itself when the action changes nothing.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case LoadSnapshot:
		return a.State.clone()

	case AddPromotion:
		next := s
		next.Promotions = make([]florist.Promotion, 0, len(s.Promotions)+1)
		next.Promotions = append(next.Promotions, a.Promotion)
		next.Promotions = append(next.Promotions, s.Promotions...)
		return next

	case UpdatePromotion:
		idx := indexOfPromotion(s.Promotions, a.ID)
		if idx < 0 {
			return s
		}
		next := s
		next.Promotions = append([]florist.Promotion(nil), s.Promotions...)
		a.Patch.Apply(&next.Promotions[idx])
		return next

	case DeletePromotion:
		idx := indexOfPromotion(s.Promotions, a.ID)
		if idx < 0 {
			return s
		}
		next := s
		next.Promotions = make([]florist.Promotion, 0, len(s.Promotions)-1)
		next.Promotions = append(next.Promotions, s.Promotions[:idx]...)
		next.Promotions = append(next.Promotions, s.Promotions[idx+1:]...)
		return next

	case AddSubscriber:
		for _, sub := range s.Subscribers {
			if sub.Email == a.Subscriber.Email {
				return s
			}
		}
		next := s
		next.Subscribers = make([]florist.Subscriber, 0, len(s.Subscribers)+1)
		next.Subscribers = append(next.Subscribers, s.Subscribers...)
		next.Subscribers = append(next.Subscribers, a.Subscriber)
		return next

	case UpdateFlorist:
		next := s
		a.Patch.Apply(&next.Florist)
		return next

	default:
		return s
	}
}

func indexOfPromotion(promotions []florist.Promotion, id string) int {
	for i, p := range promotions {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// clone copies the collections so callers can not alias the store's slices.
func (s State) clone() State {
	out := s
	out.Promotions = append(make([]florist.Promotion, 0, len(s.Promotions)), s.Promotions...)
	out.Subscribers = append(make([]florist.Subscriber, 0, len(s.Subscribers)), s.Subscribers...)
	for i := range out.Promotions {
		if c := out.Promotions[i].Contact; c != nil {
			cc := *c
			out.Promotions[i].Contact = &cc
		}
	}
	return out
}
