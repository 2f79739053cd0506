package ftp

import (
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeServer speaks just enough FTP for jlaffaye/ftp to log in, size a file
// and retrieve it over one EPSV data connection per transfer.
type fakeServer struct {
	ln   net.Listener
	data []byte

	mu         sync.Mutex
	retrStatus int // Reply to RETR with this code instead of sending data (0 = serve)
	cutAfter   int // Close the data connection after this many bytes (0 = send all)
	rests      []int64
	retrs      int
}

func newFakeServer(t *testing.T, data []byte) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("tcp4 listener unavailable: %v", err)
	}
	s := &fakeServer{ln: ln, data: data}
	t.Cleanup(func() { _ = ln.Close() })
	go s.serve()
	return s
}

func (s *fakeServer) URL(name string) string {
	return "ftp://" + s.ln.Addr().String() + "/" + name
}

func (s *fakeServer) set(retrStatus, cutAfter int) {
	s.mu.Lock()
	s.retrStatus, s.cutAfter = retrStatus, cutAfter
	s.mu.Unlock()
}

func (s *fakeServer) restOffsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.rests...)
}

func (s *fakeServer) retrCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retrs
}

func (s *fakeServer) serve() {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(c)
	}
}

func (s *fakeServer) handle(c net.Conn) {
	tp := textproto.NewConn(c)
	defer func() { _ = tp.Close() }()
	reply := func(format string, args ...any) { _ = tp.PrintfLine(format, args...) }

	var offset int64
	var dataLn net.Listener
	defer func() {
		if dataLn != nil {
			_ = dataLn.Close()
		}
	}()

	reply("220 fake ready")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		cmd, arg, _ := strings.Cut(line, " ")
		switch strings.ToUpper(cmd) {
		case "USER":
			reply("230 logged in")
		case "TYPE":
			reply("200 type set")
		case "SIZE":
			reply("213 %d", len(s.data))
		case "EPSV":
			if dataLn != nil {
				_ = dataLn.Close()
			}
			dataLn, err = net.Listen("tcp4", "127.0.0.1:0")
			if err != nil {
				reply("425 no data port")
				continue
			}
			reply("229 Entering Extended Passive Mode (|||%d|)", dataLn.Addr().(*net.TCPAddr).Port)
		case "REST":
			offset, _ = strconv.ParseInt(arg, 10, 64)
			s.mu.Lock()
			s.rests = append(s.rests, offset)
			s.mu.Unlock()
			reply("350 restarting at %d", offset)
		case "RETR":
			s.retr(reply, dataLn, offset)
			dataLn = nil
			offset = 0
		case "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 %s not implemented", cmd)
		}
	}
}

func (s *fakeServer) retr(reply func(string, ...any), dataLn net.Listener, offset int64) {
	s.mu.Lock()
	s.retrs++
	status, cut := s.retrStatus, s.cutAfter
	s.mu.Unlock()

	if dataLn == nil {
		reply("425 use EPSV first")
		return
	}
	defer func() { _ = dataLn.Close() }()

	if status != 0 {
		reply("%d permission denied", status)
		return
	}

	dc, err := dataLn.Accept()
	if err != nil {
		reply("425 data connection failed")
		return
	}
	payload := s.data[offset:]
	if cut > 0 && cut < len(payload) {
		payload = payload[:cut]
	}
	reply("150 sending %d bytes", len(payload))
	_, _ = dc.Write(payload)
	_ = dc.Close()

	if len(payload) < len(s.data)-int(offset) {
		reply("426 transfer aborted")
		return
	}
	reply("226 transfer complete")
}
