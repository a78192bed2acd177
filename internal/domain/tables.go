package domain

var Tables = []interface{}{
	&Medicine{},
	&Prescription{},
	&Purchase{},
	&User{},
	&DecrementRun{},
}
