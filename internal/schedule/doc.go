// Package schedule holds the scheduling domain model: the scheduled email
// record, the recurrence enumeration, and the calculator that advances a
// fire time by one recurrence period in a fixed reference timezone.
package schedule
