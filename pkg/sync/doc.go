/*
The sync package holds the pieces of the dfsync algorithm that the server and
the client share.

There are three parts:
1) DeleteAction -- The vote tally for a pending delete. The server creates
   one per DELETE request and decides whether the file is removed everywhere
   or restored.
2) Copy -- The data channel copy loop. Both sides move file contents with
   the same fixed buffer and flush after every chunk.
3) Storage -- The flat shared directory. Files are addressed by a single
   name, and names that would escape the directory are rejected.

The protocol that drives these pieces lives in the server and client
subpackages.
*/
package sync
