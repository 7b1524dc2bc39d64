package http2

import "github.com/valyala/fasthttp"

// Ctx carries one in-flight request/response pair through a Conn's
// write and read loops. The caller blocks on Err, which receives one
// value (nil on success). Err is closed after a stream finishes; when
// the request fails to be written or the connection shuts down, the
// error is sent and Err is left open.
type Ctx struct {
	Request  *fasthttp.Request
	Response *fasthttp.Response
	Err      chan error

	streamID uint32
}

// AcquireCtx builds a Ctx wrapping req/res, ready to hand to Conn.Write.
func AcquireCtx(req *fasthttp.Request, res *fasthttp.Response) *Ctx {
	return &Ctx{
		Request:  req,
		Response: res,
		Err:      make(chan error, 1),
	}
}
