package app

import (
	"context"
	"encoding/binary"
	"net/netip"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/pmlproject9/lbset/pkg/ipset"
)

type stressResult struct {
	want    bool
	lookups int64
	wrong   int64
	writes  int64
}

// churnParam builds the i-th synthetic entry: 198.18.0.0/15 for IPv4 and
// 2001:db8::/64 for IPv6, with a rotating port.
func churnParam(s *ipset.IPSet, i int) *ipset.Param {
	p := &ipset.Param{
		Family: s.Family(),
		Proto:  ipset.IPProtoTCP,
		Flag:   ipset.FlagExist,
	}
	if s.Family() == ipset.FamilyIPv4 {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], 198<<24|18<<16|uint32(i&0x1ffff))
		p.Range.MinAddr = netip.AddrFrom4(b)
	} else {
		b := netip.MustParseAddr("2001:db8::").As16()
		binary.BigEndian.PutUint32(b[12:], uint32(i))
		p.Range.MinAddr = netip.AddrFrom16(b)
	}
	if s.HashType == ipset.HashIPPort {
		p.Range.MinPort = uint16(1024 + i%4096)
		p.Range.MaxPort = p.Range.MinPort
	}
	return p
}

// runStress keeps one writer adding and deleting a rotating window of entries
// that never touch probe, while readers test probe and count wrong answers.
func runStress(ctx context.Context, s *ipset.IPSet, probe *ipset.Param, readers, window int, d time.Duration) (stressResult, error) {
	var res stressResult
	want, err := s.Test(probe)
	if err != nil {
		return res, err
	}
	res.want = want

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	var lookups, wrong, writes atomic.Int64
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for i := 0; ; i++ {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			p := churnParam(s, i)
			if p.Range.MinAddr == probe.Range.MinAddr {
				continue
			}
			if err := s.Add(p); err != nil {
				return err
			}
			if i >= window {
				if err := s.Del(churnParam(s, i-window)); err != nil {
					return err
				}
			}
			writes.Add(1)
		}
	})

	for r := 0; r < readers; r++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				default:
				}
				got, err := s.Test(probe)
				if err != nil {
					return err
				}
				lookups.Add(1)
				if got != want {
					wrong.Add(1)
				}
			}
		})
	}

	err = g.Wait()
	res.lookups, res.wrong, res.writes = lookups.Load(), wrong.Load(), writes.Load()
	klog.V(2).Infof("stress on %s finished: %+v", s.Name, res)
	return res, err
}
