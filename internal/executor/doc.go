// Package executor owns the long-lived go2_motion child process and the
// unacknowledged line protocol used to drive it.
//
// One Controller manages one session:
//   - Start spawns the command with stdout and stderr merged into one pipe and
//     waits (bounded) for a ready marker such as "Go2 Motion".
//   - A drain goroutine reads child output for the whole session so the child
//     never stalls on a full pipe; lines are mirrored to the log and kept in a
//     bounded tail.
//   - A single writer goroutine owns stdin. Send and SendGo hand it one line
//     at a time and give up after the write timeout.
//   - Shutdown writes "q", waits, then escalates SIGTERM → grace → SIGKILL and
//     joins every goroutine before returning.
//
// Protocol lines:
//   - "<n>\n" for menu action n in 1..13
//   - "/go\n" for the executor's context-dependent trigger
//   - "q\n" to end the session
//
// Nothing is acknowledged. Liveness is inferred from the process still
// running; success or failure only from its exit code.
package executor
