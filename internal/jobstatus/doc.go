// Package jobstatus tracks acquisition jobs handed to out-of-process
// workers. Unlike jobqueue there is no retry or lease machinery: each job
// is a directly-addressed Redis hash the worker mutates in place, plus a
// work-order list the workers pop from.
package jobstatus
