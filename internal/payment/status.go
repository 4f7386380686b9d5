package payment

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusSucceeded: true, StatusFailed: true, StatusCancelled: true},
	StatusProcessing: {StatusSucceeded: true, StatusFailed: true, StatusCancelled: true},
	StatusSucceeded:  {StatusRefunded: true},
	StatusFailed:     {},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
