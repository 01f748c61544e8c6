package paxos

import bolt "go.etcd.io/bbolt"

import "github.com/sirgallo/tso/pkg/utils"


//=========================================== Paxos Lease Store


/*
	open the lease record store at the given path and create the lease
	bucket if it does not already exist
*/

func NewPaxosStore(dbPath string) (*PaxosStore, error) {
	db, openErr := bolt.Open(dbPath, 0600, nil)
	if openErr != nil { return nil, openErr }

	leaseTransaction := func(tx *bolt.Tx) error {
		bucketName := []byte(Bucket)
		_, createErr := tx.CreateBucketIfNotExists(bucketName)
		if createErr != nil { return createErr }

		return nil
	}

	bucketErr := db.Update(leaseTransaction)
	if bucketErr != nil { return nil, bucketErr }

	return &PaxosStore{
		DBFile: dbPath,
		DB: db,
	}, nil
}

/*
	read the current lease record, nil if the cluster has never had a master
*/

func (store *PaxosStore) GetLeaseRecord() (*LeaseRecord, error) {
	var record *LeaseRecord

	getTransaction := func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(Bucket))

		encoded := bucket.Get([]byte(RecordKey))
		if encoded == nil { return nil }

		decoded, decErr := utils.DecodeBytesToStruct[LeaseRecord](encoded)
		if decErr != nil { return decErr }

		record = decoded
		return nil
	}

	getErr := store.DB.View(getTransaction)
	if getErr != nil { return nil, getErr }

	return record, nil
}

/*
	Update Lease Record:
		run a read-modify-write against the record inside a single bolt
		transaction. the mutation receives the current record (nil when
		absent) and returns the record to persist, so every consensus op is
		a conditional write.
*/

func (store *PaxosStore) UpdateLeaseRecord(mutate func(current *LeaseRecord) (*LeaseRecord, error)) error {
	updateTransaction := func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(Bucket))

		var current *LeaseRecord

		encoded := bucket.Get([]byte(RecordKey))
		if encoded != nil {
			decoded, decErr := utils.DecodeBytesToStruct[LeaseRecord](encoded)
			if decErr != nil { return decErr }

			current = decoded
		}

		next, mutateErr := mutate(current)
		if mutateErr != nil { return mutateErr }
		if next == nil { return nil }

		encodedNext, encErr := utils.EncodeStructToBytes[LeaseRecord](*next)
		if encErr != nil { return encErr }

		return bucket.Put([]byte(RecordKey), encodedNext)
	}

	return store.DB.Update(updateTransaction)
}

func (store *PaxosStore) Close() error {
	return store.DB.Close()
}
