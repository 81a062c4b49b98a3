package prober

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// fakeServer answers a single canned response for every query it
// receives, closing over the test's *testing.T for failures.
func fakeServer(t *testing.T, handler dns.HandlerFunc) (addr string, shutdown func()) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := &dns.Server{PacketConn: pc, Handler: handler}
	go server.ActivateAndServe()
	return pc.LocalAddr().String(), func() { server.Shutdown() }
}

func TestProbeNotListedOnNXDOMAIN(t *testing.T) {
	addr, shutdown := fakeServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(r, dns.RcodeNameError)
		w.WriteMsg(m)
	})
	defer shutdown()

	p, err := New(addr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out := p.Probe(ctx, "1.2.3.4", "zen.example")
	if out.Result != NotListed {
		t.Errorf("Result = %q, want %q", out.Result, NotListed)
	}
}

func TestProbeListedWithTXTDetails(t *testing.T) {
	addr, shutdown := fakeServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		switch r.Question[0].Qtype {
		case dns.TypeA:
			rr, _ := dns.NewRR(r.Question[0].Name + " 60 IN A 127.0.0.2")
			m.Answer = append(m.Answer, rr)
		case dns.TypeTXT:
			rr, _ := dns.NewRR(r.Question[0].Name + ` 60 IN TXT "blocked: spam source"`)
			m.Answer = append(m.Answer, rr)
		}
		w.WriteMsg(m)
	})
	defer shutdown()

	p, err := New(addr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out := p.Probe(ctx, "1.2.3.4", "zen.example")
	if out.Result != Listed {
		t.Fatalf("Result = %q, want %q", out.Result, Listed)
	}
	if out.Details != "blocked: spam source" {
		t.Errorf("Details = %q, want %q", out.Details, "blocked: spam source")
	}
}

func TestProbeNoAnswerOnEmptySuccess(t *testing.T) {
	addr, shutdown := fakeServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		w.WriteMsg(m)
	})
	defer shutdown()

	p, err := New(addr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out := p.Probe(ctx, "1.2.3.4", "zen.example")
	if out.Result != NoAnswer {
		t.Errorf("Result = %q, want %q", out.Result, NoAnswer)
	}
}

func TestProbeInvalidIP(t *testing.T) {
	p, err := New("127.0.0.1:1") // never dialed; validation fails first
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out := p.Probe(context.Background(), "not-an-ip", "zen.example")
	if out.Result != InvalidIP {
		t.Errorf("Result = %q, want %q", out.Result, InvalidIP)
	}
}

func TestReverseQueryName(t *testing.T) {
	got, err := reverseQueryName("1.2.3.4", "zen.example")
	if err != nil {
		t.Fatalf("reverseQueryName: %v", err)
	}
	want := "4.3.2.1.zen.example."
	if got != want {
		t.Errorf("reverseQueryName = %q, want %q", got, want)
	}
}
