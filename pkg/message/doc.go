// Package message defines the reduction request that autoreduce front ends
// place on the DataReady queue.
//
// # Overview
//
// A Message tells the reduction worker which data file(s) to reduce, which
// experiment (RB number) they belong to and who asked for the reduction. It is
// the only contract between the submission tools and the worker: the worker
// never talks to ICAT or the data files' owners directly.
//
// # Wire Format
//
// Messages travel as JSON objects with the fields rb_number, instrument, data,
// run_number, run_title, facility, started_by, reduction_arguments and
// description. A message for a single run carries rb_number, data and
// run_number as scalars. A message that reduces several runs together carries
// each of them as an array, one element per run, in the same order.
//
// # Usage Example
//
//	msg := &message.Message{
//		RBNumbers:  []string{"1910001"},
//		Instrument: "MARI",
//		Locations:  []string{"/isis/NDXMARI/Instrument/data/cycle_19_1/MAR25581.nxs"},
//		RunNumbers: []int{25581},
//		Facility:   message.FacilityISIS,
//		StartedBy:  message.StartedByAutoreduction,
//	}
//	if err := msg.Validate(); err != nil {
//		return err
//	}
//	payload, err := msg.Serialize()
package message
