package query

type Order uint8

const (
	Asc Order = iota
	Desc
)

type Option func(*Options)

func WithLimit(limit int) Option {
	return func(o *Options) {
		if limit > 0 {
			o.Limit = limit
		}
	}
}

func WithAscending() Option {
	return func(o *Options) {
		o.Order = Asc
	}
}

func WithDescending() Option {
	return func(o *Options) {
		o.Order = Desc
	}
}

type Options struct {
	// Limit bounds the result set; zero means unbounded.
	Limit int
	Order Order
}

func DefaultOptions() Options {
	return Options{
		Limit: 0,
		Order: Asc,
	}
}

func ApplyOptions(options ...Option) Options {
	applied := DefaultOptions()
	for _, option := range options {
		option(&applied)
	}
	return applied
}
