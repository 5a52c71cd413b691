package ipset

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"
)

// Executor keeps the named sets of one dataplane and applies control-plane
// commands to them.  The dataplane holds *IPSet references obtained from Get;
// Swap and ReFlush replace contents under those references.
type Executor struct {
	mu   sync.RWMutex
	sets map[string]*IPSet
}

func NewExecutor() *Executor {
	return &Executor{
		sets: make(map[string]*IPSet),
	}
}

// Create registers ipset.  Creating a set that exists with the same type and
// family is a no-op, as with -exist.
func (e *Executor) Create(ipset *IPSet) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if old, ok := e.sets[ipset.Name]; ok {
		if old.HashType == ipset.HashType && old.family == ipset.family {
			return nil
		}
		return errors.Wrapf(ErrExists, "error creating ipset %s: exists as %s %s", ipset.Name, old.HashType, old.family)
	}
	e.sets[ipset.Name] = ipset
	return nil
}

func (e *Executor) Get(name string) (*IPSet, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s, ok := e.sets[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "ipset %s", name)
	}
	return s, nil
}

func (e *Executor) Destroy(name string) error {
	e.mu.Lock()
	s, ok := e.sets[name]
	delete(e.sets, name)
	e.mu.Unlock()

	if !ok {
		return errors.Wrapf(ErrNotFound, "error destroy ipset:%s", name)
	}
	s.Destroy()
	return nil
}

func (e *Executor) DestroyIfExist(name string) error {
	err := e.Destroy(name)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (e *Executor) adt(op Opcode, name string, entry string, exist bool) (bool, error) {
	s, err := e.Get(name)
	if err != nil {
		return false, err
	}
	p, err := ParseEntry(s.HashType, entry)
	if err != nil {
		return false, err
	}
	if exist {
		p.Flag |= FlagExist
	}
	ok, err := s.Adt(op, p)
	if err != nil {
		return false, errors.Wrapf(err, "error %s entry %s ipset:%s", op, entry, name)
	}
	return ok, nil
}

func (e *Executor) Add(name string, entry string, exist bool) error {
	_, err := e.adt(OpAdd, name, entry, exist)
	return err
}

func (e *Executor) Del(name string, entry string, exist bool) error {
	_, err := e.adt(OpDel, name, entry, exist)
	return err
}

func (e *Executor) Test(name string, entry string) (bool, error) {
	return e.adt(OpTest, name, entry, false)
}

func (e *Executor) Flush(name string) error {
	s, err := e.Get(name)
	if err != nil {
		return err
	}
	s.Flush()
	return nil
}

// ListIPSets returns the set names, sorted.
func (e *Executor) ListIPSets() ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := sets.NewString()
	for name := range e.sets {
		names.Insert(name)
	}
	return names.List(), nil
}

// ListEntries returns the entries of a set in save syntax, with their
// comments when withComments is set.
func (e *Executor) ListEntries(name string, withComments bool) ([]string, error) {
	if name == "" {
		return nil, fmt.Errorf("ipset name can't be empty")
	}
	s, err := e.Get(name)
	if err != nil {
		return nil, err
	}

	entries := make([]string, 0, s.Len())
	s.List(withComments, func(m Member) {
		entries = append(entries, FormatMember(s.HashType, m))
	})
	return entries, nil
}

// ReFlush replaces the contents of s with entries.  The entries are loaded into
// a temporary set which is then swapped in, so readers of s never see a
// partially loaded set.
func (e *Executor) ReFlush(s *IPSet, entries []string) error {
	tempName := s.Name + "-t"
	params := s.Params()
	tmpIPSet, err := New(tempName, s.HashType, &params)
	if err != nil {
		return err
	}
	if err = e.DestroyIfExist(tempName); err != nil {
		return err
	}
	if err = e.Create(tmpIPSet); err != nil {
		klog.Errorf("error to create ipset %s (%v)", tmpIPSet.Name, err)
		return err
	}
	defer e.forget(tempName)

	if err = e.Create(s); err != nil {
		klog.Errorf("error to create ipset %s (%v)", s.Name, err)
		return err
	}
	for _, entry := range entries {
		if err = e.Add(tmpIPSet.Name, entry, true); err != nil {
			klog.Errorf("error addding entry %s to set: %s (%v)", entry, tmpIPSet.Name, err)
			return err
		}
	}
	return e.Swap(tmpIPSet.Name, s.Name)
}

// forget unregisters a set without destroying its storage; after a swap the
// old contents may still be in use by in-flight lookups.
func (e *Executor) forget(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sets, name)
}

// Swap exchanges the contents of two sets of the same type and family.
func (e *Executor) Swap(from string, to string) error {
	if from == to {
		return errors.Wrapf(ErrInvalidArgument, "error swap %s %s", from, to)
	}
	a, err := e.Get(from)
	if err != nil {
		return err
	}
	b, err := e.Get(to)
	if err != nil {
		return err
	}
	if a.HashType != b.HashType || a.family != b.family {
		return errors.Wrapf(ErrInvalidArgument, "error swap %s %s: incompatible sets", from, to)
	}

	swapContents(a, b)
	klog.V(2).Infof("swapped ipset %s and %s", from, to)
	return nil
}
