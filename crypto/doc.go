/*
Package crypto provides the basis for secure communication between store
replicas. Other than making proper TLS configurations for public as well
as internal usage available, it also provides a script to set up the
needed internal PKI for secure and authenticated communication between
replicas.
*/
package crypto
