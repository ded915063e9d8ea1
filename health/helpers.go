package health

import "time"

// NewHealthy creates a new healthy status
func NewHealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Status:    StateHealthy,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewUnhealthy creates a new unhealthy status
func NewUnhealthy(component, message string) Status {
	return Status{
		Component: component,
		Status:    StateUnhealthy,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewDegraded creates a new degraded status
func NewDegraded(component, message string) Status {
	return Status{
		Component: component,
		Status:    StateDegraded,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Aggregate folds backend statuses into one.
//
// The search backend is what every artifact query depends on, so it alone
// can make the service unhealthy. Any other failing backend only degrades
// the service because its fields resolve to null rather than failing a query.
func Aggregate(component string, critical map[string]bool, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "No backends to aggregate")
	}

	hasUnhealthy := false
	hasDegraded := false

	for _, sub := range subStatuses {
		switch {
		case sub.IsUnhealthy() && critical[sub.Component]:
			hasUnhealthy = true
		case sub.IsUnhealthy(), sub.IsDegraded():
			hasDegraded = true
		}
	}

	var status Status
	switch {
	case hasUnhealthy:
		status = NewUnhealthy(component, "A critical backend is unreachable")
	case hasDegraded:
		status = NewDegraded(component, "One or more backends are unreachable")
	default:
		status = NewHealthy(component, "All backends are reachable")
	}

	status.SubStatuses = make([]Status, len(subStatuses))
	copy(status.SubStatuses, subStatuses)

	return status
}
