package types

type TableRenderer interface {
	Headers() []string
	Rows() [][]string
	EmptyMessage() string
}

// TableGroup renders as several tables, one after another
type TableGroup interface {
	Tables() []TableRenderer
}

type TableRenderable interface {
	AsTableRenderer() TableRenderer
}
