package batch

// ItemStatus is the processing outcome of a single bulk item.
type ItemStatus string

// Bulk item status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
)

// Result is the outcome of creating one item of a bulk request.
type Result struct {
	index   int
	uuid    string
	message string
	status  ItemStatus
	err     error
}

// NewOK creates a successful result for the item at index.
func NewOK(index int, uuid, message string) Result {
	return Result{index: index, uuid: uuid, message: message, status: StatusOK}
}

// NewError creates a failed result for the item at index.
func NewError(index int, err error) Result {
	return Result{index: index, status: StatusError, err: err}
}

// Index returns the position of the item in the request.
func (r Result) Index() int { return r.index }

// UUID returns the uuid of the created resource.
func (r Result) UUID() string { return r.uuid }

// Message returns the success message.
func (r Result) Message() string { return r.message }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }
