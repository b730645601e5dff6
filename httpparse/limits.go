package httpparse

// Limits bounds the parser's resource usage per spec.md §4.6. Zero
// values are replaced by DefaultLimits in NewParser.
type Limits struct {
	MaxRequestLine int // bytes, excluding the terminating CRLF
	MaxHeaderBytes int // sum of header-line bytes, excluding CRLFs
	MaxHeaderCount int
}

// DefaultLimits matches the defaults named in spec.md §4.6.
var DefaultLimits = Limits{
	MaxRequestLine: 8 * 1024,
	MaxHeaderBytes: 8 * 1024,
	MaxHeaderCount: 100,
}

func (l Limits) orDefault() Limits {
	if l.MaxRequestLine <= 0 {
		l.MaxRequestLine = DefaultLimits.MaxRequestLine
	}
	if l.MaxHeaderBytes <= 0 {
		l.MaxHeaderBytes = DefaultLimits.MaxHeaderBytes
	}
	if l.MaxHeaderCount <= 0 {
		l.MaxHeaderCount = DefaultLimits.MaxHeaderCount
	}
	return l
}
