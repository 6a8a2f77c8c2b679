// Package cronexpr parses six field cron expressions with second precision
// and computes their next firing instant.
//
// Fields, in order, are second (0-59), minute (0-59), hour (0-23),
// day-of-month (1-31), month (1-12 or JAN-DEC) and day-of-week (0-6 or
// SUN-SAT, 0 is Sunday). When both day-of-month and day-of-week are
// restricted an instant matches if either one does, as in classic cron.
package cronexpr
