package server

import "os"

// Stdio adapts a pair of files, usually stdin and stdout, to the
// io.ReadWriteCloser expected by Serve.
func Stdio(in, out *os.File) Transport {
	return Transport{in, out}
}

// Transport reads requests from in and writes responses to out.
type Transport struct{ in, out *os.File }

func (c Transport) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c Transport) Write(p []byte) (int, error) { return c.out.Write(p) }

// Close closes both files.
func (c Transport) Close() error {
	if err := c.in.Close(); err != nil {
		_ = c.out.Close()
		return err
	}

	return c.out.Close()
}
