// Package tolerance holds the fixed tables of IEC 61672-1/-3 and BS 7580
// (IEC 60651) used to classify sound level meter readings, together with the
// pure classification functions that turn a deviation into a class or a
// PASS/FAIL verdict.
//
// The tables are package level and never modified; every lookup returns a
// copy.
package tolerance
