// Package scheduler triggers automatic runs on a cron or interval schedule.
//
// It only decides when to run; the run itself belongs to the engine, whose
// run lock also covers overlap with manual triggers from the panel or bot.
package scheduler
