/******************************************************************************
 *
 *  Description :
 *
 *    Contact list and block list operations. Events are strictly
 *    self-facing: the other party is never notified.
 *
 *****************************************************************************/

package domain

import (
	t "github.com/mercury-im/mercury/server/store/types"
)

// CreateContact saves other into the caller's contact list. Re-saving an
// existing contact writes nothing and emits nothing.
func (s *Service) CreateContact(caller, other t.Uid) error {
	if caller == other {
		return t.ErrMalformed
	}
	user, err := s.GetUser(other)
	if err != nil {
		return err
	}
	if _, err := s.store.Contacts.Create(caller, other); err != nil {
		if err == t.ErrDuplicate {
			return nil
		}
		return err
	}
	s.publish(&ContactAdded{Owner: caller, Contact: *user})
	return nil
}

// DeleteContact drops other from the caller's contact list. Deleting an
// absent contact is a silent no-op.
func (s *Service) DeleteContact(caller, other t.Uid) error {
	if err := s.store.Contacts.Delete(caller, other); err != nil {
		if err == t.ErrNotFound {
			return nil
		}
		return err
	}
	s.publish(&ContactRemoved{Owner: caller, Contact: other})
	return nil
}

// ReadContacts pages through the caller's contacts by contact-row
// ordinal.
func (s *Service) ReadContacts(caller t.Uid, page Page) (Connection[t.Contact], error) {
	contacts, err := s.store.Contacts.ForUser(caller, nil)
	if err != nil {
		return Connection[t.Contact]{}, err
	}
	return pageOf(contacts, func(c t.Contact) t.Uid { return c.Id }, page), nil
}

// BlockUser blocks other for the caller. Blocking an already-blocked
// user writes nothing and emits nothing; the blocked party is never
// notified either way.
func (s *Service) BlockUser(caller, other t.Uid) error {
	if caller == other {
		return t.ErrMalformed
	}
	if _, err := s.GetUser(other); err != nil {
		return err
	}
	if _, err := s.store.Blocks.Create(caller, other); err != nil {
		if err == t.ErrDuplicate {
			return nil
		}
		return err
	}
	s.publish(&BlockedAccount{Blocker: caller, Blocked: other})
	return nil
}

// UnblockUser lifts the caller's block. Unblocking a user who is not
// blocked is a silent no-op.
func (s *Service) UnblockUser(caller, other t.Uid) error {
	if err := s.store.Blocks.Delete(caller, other); err != nil {
		if err == t.ErrNotFound {
			return nil
		}
		return err
	}
	s.publish(&UnblockedAccount{Blocker: caller, Blocked: other})
	return nil
}

// ReadBlockedUsers pages through the caller's block list by block-row
// ordinal.
func (s *Service) ReadBlockedUsers(caller t.Uid, page Page) (Connection[t.BlockEntry], error) {
	blocks, err := s.store.Blocks.ForUser(caller, nil)
	if err != nil {
		return Connection[t.BlockEntry]{}, err
	}
	return pageOf(blocks, func(b t.BlockEntry) t.Uid { return b.Id }, page), nil
}
